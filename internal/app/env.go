package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"golang.org/x/term"

	"runcoach/internal/config"
)

const defaultAWSRegion = "us-east-1"

// LoadConfig loads the configuration. Outside APP_ENV=local, *_SSM_PARAM
// pointers are resolved through Parameter Store.
func LoadConfig(envFiles ...string) (*config.Config, error) {
	var provider config.SecretProvider
	if env := os.Getenv("APP_ENV"); env != "" && env != "local" {
		region := os.Getenv("AWS_REGION")
		if region == "" {
			region = defaultAWSRegion
		}
		provider = config.NewSSMProvider(region)
	}
	return config.Load(provider, envFiles...)
}

// NewLogger builds the process logger. JSON goes to w unless the process is
// local and w is an interactive terminal, in which case text is easier to
// read.
func NewLogger(w io.Writer, level, env string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	if env == "local" && isTerminal(w) {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func newCloudWatchClient(ctx context.Context, region string) (*cloudwatch.Client, error) {
	if region == "" {
		region = defaultAWSRegion
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for CloudWatch (region=%s): %w", region, err)
	}
	return cloudwatch.NewFromConfig(cfg), nil
}
