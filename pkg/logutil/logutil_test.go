// Copyright 2024 Kestrel Engine Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logutil

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestLogConfigGetters(t *testing.T) {
	cfg := &LogConfig{
		Level:           "debug",
		Format:          "console",
		StacktraceLevel: "panic",
	}
	cfg.adjust()
	require.Equal(t, zap.NewAtomicLevelAt(zap.DebugLevel), cfg.getLevel())
	require.Equal(t, 2, len(cfg.getOptions()))
	require.Equal(t, getConsoleSyncer(), cfg.getSyncer())

	entry := zapcore.Entry{Level: zapcore.DebugLevel, Message: "console msg"}
	want, _ := getLoggerEncoder("console").EncodeEntry(entry, nil)
	got, _ := cfg.getEncoder().EncodeEntry(entry, nil)
	require.Equal(t, want.String(), got.String())
}

func TestLogConfigDefaults(t *testing.T) {
	cfg := &LogConfig{}
	cfg.adjust()
	require.Equal(t, "info", cfg.Level)
	require.Equal(t, "console", cfg.Format)
	require.Equal(t, 512, cfg.MaxSize)
	require.Equal(t, "panic", cfg.StacktraceLevel)
}

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		name string
		conf *LogConfig
	}{
		{
			name: "console",
			conf: &LogConfig{
				Level:  "debug",
				Format: "console",
			},
		},
		{
			name: "json",
			conf: &LogConfig{
				Level:           "debug",
				Format:          "json",
				StacktraceLevel: "error",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := SetupLogger(tt.conf)
			require.NotNil(t, logger)
			require.Same(t, logger, GetGlobalLogger())
		})
	}
}

func TestSetupLoggerBadFormat(t *testing.T) {
	require.PanicsWithValue(t, "unsupported log format: yaml", func() {
		SetupLogger(&LogConfig{Format: "yaml"})
	})
	require.PanicsWithValue(t, "unsupported log level: loud", func() {
		SetupLogger(&LogConfig{Level: "loud"})
	})
}

func TestSetupLoggerDirPanics(t *testing.T) {
	require.PanicsWithValue(t, "log file can't be a directory", func() {
		SetupLogger(&LogConfig{Filename: t.TempDir()})
	})
}

func TestGetLoggerEncoder(t *testing.T) {
	tests := []struct {
		name       string
		format     string
		entry      zapcore.Entry
		wantOutput *regexp.Regexp
	}{
		{
			name:       "console",
			format:     "console",
			entry:      zapcore.Entry{Level: zapcore.DebugLevel, Message: "console msg"},
			wantOutput: regexp.MustCompile(`\d{4}/\d{2}/\d{2} (\d{2}:{0,1}){3}\.\d{6} [+-]\d{4}\tDEBUG\tconsole msg`),
		},
		{
			name:       "json",
			format:     "json",
			entry:      zapcore.Entry{Level: zapcore.DebugLevel, Message: "json msg"},
			wantOutput: regexp.MustCompile(`\{.*"level":"DEBUG".*"msg":"json msg".*\}`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := getLoggerEncoder(tt.format)
			require.NotNil(t, enc)
			buf, err := enc.EncodeEntry(tt.entry, nil)
			require.NoError(t, err)
			require.Regexp(t, tt.wantOutput, buf.String())
		})
	}
}
