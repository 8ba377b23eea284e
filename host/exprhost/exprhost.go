// Package exprhost builds connection callback tables from expr programs
// declared in the configuration, giving the bridge a scriptable host
// environment without embedding a full language runtime.
package exprhost

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog"

	"github.com/timzifer/wsbridge/config"
	"github.com/timzifer/wsbridge/host"
)

// Table is a host.Callbacks implementation whose callback bodies are
// compiled expr programs.
//
// Every program runs with the variables `payload` (message text, error text
// or disconnect reason depending on the callback), `reason` (alias of
// payload) and `conn` (the connection's string identity), plus the functions
// `log(msg)`, `send(text)` and `close()` bound to the connection the event
// arrived on.
type Table struct {
	programs map[host.CallbackKey]*vm.Program
	logger   zerolog.Logger
}

// Compile builds the callback table for one configured connection. Script
// compile errors fail the whole configuration load.
func Compile(cfg config.ConnectionConfig, logger zerolog.Logger) (*Table, error) {
	sources := map[host.CallbackKey]string{
		host.OnConnect:    cfg.OnConnect,
		host.OnMessage:    cfg.OnMessage,
		host.OnError:      cfg.OnError,
		host.OnDisconnect: cfg.OnDisconnect,
	}

	table := &Table{
		programs: make(map[host.CallbackKey]*vm.Program),
		logger:   logger.With().Str("component", "exprhost").Str("url", cfg.URL).Logger(),
	}
	for key, source := range sources {
		if source == "" {
			continue
		}
		program, err := compileCallback(source)
		if err != nil {
			return nil, fmt.Errorf("connection %s: compile %s: %w", cfg.URL, key, err)
		}
		table.programs[key] = program
	}
	return table, nil
}

func compileCallback(source string) (*vm.Program, error) {
	return expr.Compile(source, expr.Env(map[string]interface{}{}), expr.AllowUndefinedVariables())
}

// Lookup implements host.Callbacks.
func (t *Table) Lookup(key host.CallbackKey) (host.Callback, bool) {
	program, ok := t.programs[key]
	if !ok {
		return nil, false
	}
	return func(conn host.Connection, payload string) error {
		env := t.environment(conn, payload)
		if _, err := vm.Run(program, env); err != nil {
			return fmt.Errorf("run %s: %w", key, err)
		}
		return nil
	}, true
}

func (t *Table) environment(conn host.Connection, payload string) map[string]interface{} {
	return map[string]interface{}{
		"payload": payload,
		"reason":  payload,
		"conn":    conn.String(),
		"log": func(msg string) bool {
			t.logger.Info().Str("conn", conn.String()).Msg(msg)
			return true
		},
		"send": func(text string) bool {
			if err := conn.Send(text); err != nil {
				t.logger.Warn().Err(err).Msg("script send failed")
				return false
			}
			return true
		},
		"close": func() bool {
			if err := conn.Close(); err != nil {
				t.logger.Warn().Err(err).Msg("script close failed")
				return false
			}
			return true
		},
	}
}
