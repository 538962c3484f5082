package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/faceauth/internal/config"
	"github.com/example/faceauth/internal/faceauth"
	"github.com/example/faceauth/internal/grpcclient"
	"github.com/example/faceauth/internal/liveness"
	"github.com/example/faceauth/internal/logging"
	"github.com/example/faceauth/internal/verification"
)

type verifyOptions struct {
	token        string
	subject      string
	outcomePath  string
	livenessAddr string
}

func newVerifyCmd(configPath *string) *cobra.Command {
	opts := verifyOptions{}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Run one face authentication attempt and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Read(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.Verification.Validate(); err != nil {
				return err
			}
			if opts.livenessAddr == "" {
				opts.livenessAddr = cfg.LivenessAddr
			}

			logger, err := logging.NewLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			service, err := newVerificationClient(cfg, logger)
			if err != nil {
				return err
			}
			return runVerify(cmd.Context(), cmd.OutOrStdout(), cfg, opts, service, logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.token, "token", os.Getenv("FACEAUTH_TOKEN"), "Bearer token forwarded to the verification service")
	flags.StringVar(&opts.subject, "subject", "", "Person id of the enrolled identity")
	flags.StringVar(&opts.outcomePath, "outcome", "", "Liveness report JSON file; '-' reads stdin")
	flags.StringVar(&opts.livenessAddr, "liveness-addr", "", "Address of the liveness capture daemon")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func runVerify(ctx context.Context, out io.Writer, cfg config.Config, opts verifyOptions, service verification.Service, logger *zap.Logger) error {
	capture, closeCapture, err := resolveCapture(ctx, cfg, opts, logger)
	if err != nil {
		return err
	}
	defer closeCapture()

	authenticator, err := faceauth.New(faceauth.Credentials{
		BearerToken:  opts.token,
		ClientID:     cfg.Client.ID,
		ClientSecret: cfg.Client.Secret,
		SubjectID:    opts.subject,
	}, capture, service,
		faceauth.WithLogger(logger),
		faceauth.WithSDKVersion(cfg.Verification.SDKVersion),
	)
	if err != nil {
		return err
	}

	result, err := authenticator.Initialize(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func resolveCapture(ctx context.Context, cfg config.Config, opts verifyOptions, logger *zap.Logger) (liveness.Capture, func(), error) {
	switch {
	case opts.outcomePath != "":
		report, err := readReport(opts.outcomePath)
		if err != nil {
			return nil, nil, err
		}
		return liveness.FromReport(report), func() {}, nil
	case opts.livenessAddr != "":
		capture, conn, err := grpcclient.DialLivenessCapture(ctx, opts.livenessAddr, grpcclient.ClientCredentials{
			ClientID:     cfg.Client.ID,
			ClientSecret: cfg.Client.Secret,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return capture, func() { _ = conn.Close() }, nil
	default:
		return nil, nil, errors.New("verify: one of --outcome or --liveness-addr is required")
	}
}

func readReport(path string) (liveness.Report, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return liveness.Report{}, fmt.Errorf("verify: read liveness report: %w", err)
	}

	var report liveness.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return liveness.Report{}, fmt.Errorf("verify: parse liveness report: %w", err)
	}
	return report, nil
}
