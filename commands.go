package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cppla/simplecaptcha/captcha"
	"github.com/cppla/simplecaptcha/config"
	"github.com/cppla/simplecaptcha/models"
	"github.com/cppla/simplecaptcha/routes"
	"github.com/cppla/simplecaptcha/utils"
)

// errVerifyFailed makes `verify` exit non-zero without an error message.
var errVerifyFailed = errors.New("captcha verification failed")

func newRootCmd() *cobra.Command {
	var cfgFile string
	root := &cobra.Command{
		Use:           "simplecaptcha",
		Short:         "Stateless image CAPTCHA service.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file (.json, .yaml)")

	root.AddCommand(newServeCmd(&cfgFile), newGenerateCmd(&cfgFile), newVerifyCmd(&cfgFile))
	return root
}

func newServeCmd(cfgFile *string) *cobra.Command {
	var certFile, keyFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return err
			}
			logger, err := utils.InitLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			accessLog, err := utils.NewRollingFileLogger(cfg, cfg.GinPath)
			if err != nil {
				logger.Warn("gin access log unavailable, using app logger", zap.Error(err))
				accessLog = logger
			}

			svc, closeSvc, err := buildService(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeSvc()

			db, err := config.InitDatabase(cfg, &models.ChallengeStat{})
			if err != nil {
				return err
			}
			if db == nil {
				logger.Info("no database configured, challenge stats disabled")
			}

			r := routes.SetupRouter(cfg, svc, db, accessLog)
			srv := utils.NewServer(":"+cfg.AppPort, r, logger)
			logger.Info("starting server",
				zap.String("port", cfg.AppPort),
				zap.String("replay_guard", svc.Config().ReplayGuard),
			)
			if certFile != "" {
				return srv.ListenAndServeTLS(certFile, keyFile)
			}
			return srv.ListenAndServe()
		},
	}
	cmd.Flags().StringVar(&certFile, "tls-cert", "", "TLS certificate file")
	cmd.Flags().StringVar(&keyFile, "tls-key", "", "TLS key file")
	return cmd
}

func newGenerateCmd(cfgFile *string) *cobra.Command {
	var (
		out    string
		length int
		digits bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Create one challenge and print its token and answer.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return err
			}
			svc, closeSvc, err := buildService(cmd.Context(), cfg, zap.NewNop())
			if err != nil {
				return err
			}
			defer closeSvc()

			var opts []captcha.CreateOption
			if cmd.Flags().Changed("length") {
				opts = append(opts, captcha.WithLength(length))
			}
			if cmd.Flags().Changed("digits") {
				opts = append(opts, captcha.WithDigits(digits))
			}
			ch, err := svc.Create(opts...)
			if err != nil {
				return err
			}
			return writeChallenge(cmd.OutOrStdout(), ch, out)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write the image to this file instead of printing a data URI")
	cmd.Flags().IntVar(&length, "length", 0, "override TEXT_LENGTH")
	cmd.Flags().BoolVar(&digits, "digits", false, "override INCLUDE_DIGITS")
	return cmd
}

func writeChallenge(w io.Writer, ch *captcha.Challenge, out string) error {
	if out != "" {
		raw, err := base64.StdEncoding.DecodeString(ch.Image)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, raw, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(w, "image: %s\n", out)
	} else {
		fmt.Fprintf(w, "image: %s\n", ch.DataURI())
	}
	fmt.Fprintf(w, "text: %s\n", ch.Text)
	fmt.Fprintf(w, "token: %s\n", ch.Token)
	fmt.Fprintf(w, "expires_at: %s\n", ch.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"))
	return nil
}

func newVerifyCmd(cfgFile *string) *cobra.Command {
	var text, token string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check an answer against a token; exits 1 when it does not match.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return err
			}
			svc, closeSvc, err := buildService(cmd.Context(), cfg, zap.NewNop())
			if err != nil {
				return err
			}
			defer closeSvc()

			ok := svc.VerifyContext(cmd.Context(), text, token)
			fmt.Fprintln(cmd.OutOrStdout(), ok)
			if !ok {
				return errVerifyFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "the answer")
	cmd.Flags().StringVar(&token, "token", "", "the token issued with the challenge")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

// buildService wires the core from cfg. With REPLAY_GUARD=redis it connects
// to redis and the returned func closes the client.
func buildService(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (*captcha.Service, func(), error) {
	cc, err := cfg.CaptchaConfig()
	if err != nil {
		return nil, nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	opts := []captcha.Option{captcha.WithLogger(logger)}
	closeFn := func() {}
	if cc.ReplayGuard == captcha.ReplayGuardRedis {
		if !cfg.RedisConfigured() {
			return nil, nil, errors.New("REPLAY_GUARD=redis needs a redis host (REDIS_HOST)")
		}
		client, err := utils.NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, captcha.WithReplayGuard(captcha.NewRedisReplayGuard(client)))
		closeFn = func() { _ = client.Close() }
	}

	svc, err := captcha.New(cc, opts...)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return svc, closeFn, nil
}
