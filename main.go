package main

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/joho/godotenv"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"stingray/modules"
)

var json = jsoniter.ConfigFastest

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// openSettingsDB opens the shared settings/cache database. The default is a
// local sqlite file; a SETTINGS_DSN with a tcp address switches to MySQL.
func openSettingsDB(log zerolog.Logger) *sql.DB {
	dsn := envOr("SETTINGS_DSN", "./manager.db")
	driver := "sqlite3"
	if strings.Contains(dsn, "@tcp(") {
		driver = "mysql"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		log.Fatal().Err(err).Str("driver", driver).Msg("falha abrindo banco de settings")
	}
	return db
}

func startProfiler(log zerolog.Logger) {
	server := os.Getenv("PYROSCOPE_SERVER")
	if server == "" {
		return
	}
	_, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: "stingray",
		ServerAddress:   server,
	})
	if err != nil {
		log.Warn().Err(err).Msg("profiler indisponível, seguindo sem ele")
		return
	}
	log.Info().Str("server", server).Msg("profiler conectado")
}

func requestLogger(log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.Debug().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Dur("duration", time.Since(start)).
			Int("status", c.Response().StatusCode()).
			Msg("request")
		return err
	}
}

type sendMessageRequest struct {
	Number       string `json:"number"`
	Text         string `json:"text"`
	Kind         string `json:"kind"`
	FileBase64   string `json:"fileBase64"`
	FileName     string `json:"fileName"`
	MimeType     string `json:"mimeType"`
	QuotedID     string `json:"quotedId"`
	QuotedSender string `json:"quotedSender"`
	QuotedText   string `json:"quotedText"`
	EditID       string `json:"editId"`
}

type markAsReadRequest struct {
	ChatID string `json:"chatId"`
	// SenderID identifica o participante do grupo que enviou as mensagens;
	// vazio em conversas diretas
	SenderID   string   `json:"senderId"`
	MessageIDs []string `json:"messageIds"`
}

func main() {
	// .env é opcional, em produção as variáveis vêm do ambiente
	_ = godotenv.Load()

	log := modules.NewLogger(envOr("LOG_LEVEL", "info"))
	startProfiler(log)

	db := openSettingsDB(log)
	store, err := modules.NewSettingsStore(db)
	if err != nil {
		log.Fatal().Err(err).Msg("falha preparando settings store")
	}
	numbers, err := modules.NewNumberCache(db)
	if err != nil {
		log.Fatal().Err(err).Msg("falha preparando cache de números")
	}

	manager := modules.NewSessionManager(modules.ManagerOptions{
		SettingsStore: store,
		AuthDir:       envOr("AUTH_DIR", "./auth_info"),
		Numbers:       numbers,
		Logger:        log,
	})
	forwarder := modules.NewWebhookForwarder(os.Getenv("WEBHOOK_URL"), os.Getenv("STRING_AUTH"), log)

	r := fiber.New(fiber.Config{
		ReadTimeout:       10 * time.Minute,
		WriteTimeout:      10 * time.Minute,
		StreamRequestBody: true,
		BodyLimit:         20 * 1024 * 1024,
		JSONEncoder:       json.Marshal,
		JSONDecoder:       json.Unmarshal,
	})
	r.Use(cors.New())
	r.Use(pprof.New())
	r.Use(requestLogger(log))

	r.Post("/initialize", func(c *fiber.Ctx) error {
		// session cleanup limpa os registros de handlers, então o webhook
		// é religado a cada initialize
		forwarder.Attach(manager)
		if err := manager.Initialize(c.Context()); err != nil {
			return c.Status(500).JSON(fiber.Map{
				"message": "falha ao iniciar sessão",
				"error":   err.Error(),
			})
		}
		return c.Status(200).JSON(manager.GetStatus())
	})

	r.Get("/status", func(c *fiber.Ctx) error {
		return c.Status(200).JSON(manager.GetStatus())
	})

	r.Get("/qrCode", func(c *fiber.Ctx) error {
		status := manager.GetStatus()
		if status.PairingCode == "" {
			return c.Status(404).JSON(fiber.Map{
				"message": "nenhum código de pareamento pendente",
			})
		}
		png, err := qrcode.Encode(status.PairingCode, qrcode.Medium, 256)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{
				"message": "falha gerando QR Code",
			})
		}
		dataURL := fmt.Sprintf("data:image/png;base64,%s", base64.StdEncoding.EncodeToString(png))
		return c.Status(200).JSON(fiber.Map{
			"qrCode": dataURL,
		})
	})

	r.Post("/sendMessage", func(c *fiber.Ctx) error {
		var body sendMessageRequest
		if err := c.BodyParser(&body); err != nil {
			return c.Status(400).JSON(fiber.Map{"message": "payload inválido"})
		}
		if body.Number == "" {
			return c.Status(400).JSON(fiber.Map{"message": "number é obrigatório"})
		}
		content := modules.Content{
			Kind:     body.Kind,
			Text:     body.Text,
			FileName: body.FileName,
			MimeType: body.MimeType,
		}
		if body.FileBase64 != "" {
			data, err := base64.StdEncoding.DecodeString(body.FileBase64)
			if err != nil {
				return c.Status(400).JSON(fiber.Map{"message": "fileBase64 inválido"})
			}
			content.Data = data
		}
		var opts *modules.SendOptions
		if body.QuotedID != "" || body.EditID != "" {
			opts = &modules.SendOptions{EditID: body.EditID}
			if body.QuotedID != "" {
				opts.Quoted = &modules.QuotedRef{
					MessageID: body.QuotedID,
					Sender:    body.QuotedSender,
					Text:      body.QuotedText,
				}
			}
		}
		receipt, err := manager.SendMessage(c.Context(), body.Number, content, opts)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{
				"message": "falha ao enviar mensagem",
				"error":   err.Error(),
			})
		}
		if receipt == nil {
			return c.Status(202).JSON(fiber.Map{
				"message": "sem sessão ativa, mensagem enfileirada",
				"queued":  true,
			})
		}
		return c.Status(200).JSON(fiber.Map{
			"id":        receipt.ID,
			"timestamp": receipt.Timestamp,
		})
	})

	r.Post("/markAsRead", func(c *fiber.Ctx) error {
		var body markAsReadRequest
		if err := c.BodyParser(&body); err != nil {
			return c.Status(400).JSON(fiber.Map{"message": "payload inválido"})
		}
		manager.MarkAsRead(c.Context(), body.ChatID, body.SenderID, body.MessageIDs)
		return c.Status(200).JSON(fiber.Map{"message": "ok"})
	})

	r.Get("/profilePicture", func(c *fiber.Ctx) error {
		chatID := c.Query("chatId")
		if chatID == "" {
			return c.Status(400).JSON(fiber.Map{"message": "chatId é obrigatório"})
		}
		pic := manager.GetProfilePicture(c.Context(), chatID)
		if pic == nil {
			return c.Status(404).JSON(fiber.Map{"message": "foto indisponível"})
		}
		return c.Status(200).JSON(pic)
	})

	r.Get("/checkNumber", func(c *fiber.Ctx) error {
		number := c.Query("number")
		if number == "" {
			return c.Status(400).JSON(fiber.Map{"message": "number é obrigatório"})
		}
		return c.Status(200).JSON(fiber.Map{
			"exists": manager.CheckNumberExists(c.Context(), number),
		})
	})

	r.Get("/settings", func(c *fiber.Ctx) error {
		cfg, err := store.Load()
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"message": "falha lendo settings"})
		}
		return c.Status(200).JSON(cfg)
	})

	r.Post("/settings", func(c *fiber.Ctx) error {
		cfg := modules.DefaultSettings()
		if err := c.BodyParser(cfg); err != nil {
			return c.Status(400).JSON(fiber.Map{"message": "payload inválido"})
		}
		if err := store.Save(cfg); err != nil {
			return c.Status(500).JSON(fiber.Map{"message": "falha salvando settings"})
		}
		results, err := manager.ReloadSettings(c.Context())
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"message": "settings salvas, recarga falhou"})
		}
		applied := make([]fiber.Map, 0, len(results))
		for _, res := range results {
			entry := fiber.Map{"step": res.Step, "ok": res.Err == nil}
			if res.Err != nil {
				entry["error"] = res.Err.Error()
			}
			applied = append(applied, entry)
		}
		return c.Status(200).JSON(fiber.Map{
			"message": "settings salvas",
			"applied": applied,
		})
	})

	r.Post("/disconnect", func(c *fiber.Ctx) error {
		manager.Disconnect()
		return c.Status(200).JSON(fiber.Map{"message": "sessão desconectada"})
	})

	r.Post("/deleteAuthInfo", func(c *fiber.Ctx) error {
		if err := manager.DeleteAuthInfo(); err != nil {
			return c.Status(500).JSON(fiber.Map{
				"message": "falha removendo credenciais",
				"error":   err.Error(),
			})
		}
		return c.Status(200).JSON(fiber.Map{"message": "credenciais removidas"})
	})

	if os.Getenv("AUTO_CONNECT") == "true" {
		r.Hooks().OnListen(func(fiber.ListenData) error {
			forwarder.Attach(manager)
			go func() {
				if err := manager.Initialize(context.Background()); err != nil {
					log.Error().Err(err).Msg("auto-connect falhou")
				}
			}()
			return nil
		})
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		log.Info().Msg("encerrando servidor")
		forwarder.Detach()
		manager.Disconnect()
		_ = r.Shutdown()
	}()

	port := envOr("PORT_STINGRAY", "8080")
	log.Info().Str("port", port).Msg("⏳ iniciando servidor")
	if err := r.Listen(":" + port); err != nil {
		log.Fatal().Err(err).Msg("servidor encerrado com erro")
	}
}
