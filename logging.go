// Copyright 2015 Matthew Holt and The Caddy Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package radsecd

import (
	"fmt"
	"io"
	"os"
	"strings"

	gsyslog "github.com/hashicorp/go-syslog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logging holds the configuration file's two process-logging knobs:
// LogLevel (1..4) and LogDestination (stdout,
// stderr, a syslog target, or a file path).
type Logging struct {
	Level       int
	Destination string
}

// Build opens Destination's writer and returns a ready-to-use
// *zap.Logger, with the writer's io.Closer registered on ctx so the
// caller doesn't have to track it separately. Output is zap's JSON
// production encoding, gated by a single level enabler.
func (l Logging) Build(ctx *Context) (*zap.Logger, error) {
	writer, closer, err := openLogDestination(l.Destination)
	if err != nil {
		return nil, fmt.Errorf("opening log destination %q: %w", l.Destination, err)
	}
	if ctx != nil && closer != nil {
		ctx.OnCancel(func() { _ = closer.Close() })
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(writer), mapLogLevel(l.Level))
	return zap.New(core), nil
}

// mapLogLevel implements the LogLevel directive:
// 1 through 4 map onto increasingly verbose zap levels; anything else
// falls back to info.
func mapLogLevel(level int) zapcore.Level {
	switch level {
	case 1:
		return zapcore.ErrorLevel
	case 2:
		return zapcore.WarnLevel
	case 4:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// remoteSyslogPrefixes maps a LogDestination scheme to the network
// DialLogger should use.
var remoteSyslogPrefixes = map[string]string{
	"syslog+tcp://": "tcp",
	"syslog+udp://": "udp",
	"syslog://":     "udp",
}

// openLogDestination resolves a LogDestination value to a writer.
// "stdout" and "stderr" (also the empty value) use the corresponding
// standard stream, which is never closed; "syslog" dials the local syslog
// daemon, a syslog[+tcp|+udp]://host address dials a remote one;
// anything else is treated as a file path, appended to or created.
func openLogDestination(dest string) (io.Writer, io.Closer, error) {
	switch {
	case dest == "", dest == "stdout":
		return os.Stdout, nil, nil
	case dest == "stderr":
		return os.Stderr, nil, nil
	case dest == "syslog":
		logger, err := gsyslog.NewLogger(gsyslog.LOG_INFO, "LOCAL0", "radsecd")
		if err != nil {
			return nil, nil, err
		}
		return logger, nil, nil
	default:
		for prefix, network := range remoteSyslogPrefixes {
			if strings.HasPrefix(dest, prefix) {
				address := strings.TrimPrefix(dest, prefix)
				logger, err := gsyslog.DialLogger(network, address, gsyslog.LOG_INFO, "LOCAL0", "radsecd")
				if err != nil {
					return nil, nil, err
				}
				return logger, nil, nil
			}
		}
		f, err := os.OpenFile(dest, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
		if err != nil {
			return nil, nil, err
		}
		return f, f, nil
	}
}
