// Package logger provides the evaluator's structured logging setup.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Global logger instance
var (
	Log zerolog.Logger
)

// Initialize sets up the global logger with configuration
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().
		Str("service", "agentoauth-evaluator").
		Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("logger initialized")
}

// GetLogger returns the global logger instance
func GetLogger() *zerolog.Logger {
	return &Log
}

func component(name string) *zerolog.Logger {
	l := Log.With().Str("component", name).Logger()
	return &l
}

// Canonicalizer returns the logger scoped to C1.
func Canonicalizer() *zerolog.Logger { return component("canonicalizer") }

// Codec returns the logger scoped to C2 (token decode/verify).
func Codec() *zerolog.Logger { return component("codec") }

// Intent returns the logger scoped to C3 (WebAuthn intent validation).
func Intent() *zerolog.Logger { return component("intent") }

// Policy returns the logger scoped to C4 (stateless policy engine).
func Policy() *zerolog.Logger { return component("policy") }

// State returns the logger scoped to C5 (state manager).
func State() *zerolog.Logger { return component("state") }

// Receipt returns the logger scoped to C6 (receipt signer).
func Receipt() *zerolog.Logger { return component("receipt") }

// HTTP returns the logger scoped to C7's HTTP surface.
func HTTP() *zerolog.Logger { return component("http") }

// Audit returns the logger scoped to the audit sink.
func Audit() *zerolog.Logger { return component("audit") }
