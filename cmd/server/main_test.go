package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseURLForListenAddr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		listenAddr string
		tls        bool
		want       string
	}{
		{name: "port only", listenAddr: ":8088", want: "http://localhost:8088"},
		{name: "ipv4 host and port", listenAddr: "127.0.0.1:8088", want: "http://127.0.0.1:8088"},
		{name: "wildcard ipv4", listenAddr: "0.0.0.0:8088", want: "http://localhost:8088"},
		{name: "wildcard ipv6", listenAddr: "[::]:8088", want: "http://localhost:8088"},
		{name: "ipv6 loopback", listenAddr: "[::1]:8088", want: "http://[::1]:8088"},
		{name: "trim", listenAddr: "  :7070  ", want: "http://localhost:7070"},
		{name: "tls", listenAddr: ":8443", tls: true, want: "https://localhost:8443"},
		{name: "empty falls back", listenAddr: "", want: "http://localhost:8088"},
		{name: "malformed passes through", listenAddr: "localhost", want: "http://localhost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, baseURLForListenAddr(tt.listenAddr, tt.tls))
		})
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "migrate", "seed"}, names)
}

func TestRootCmd_RejectsArgs(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"migrate", "extra", "--env-file", "/nonexistent/.env"})
	require.Error(t, root.Execute())
}
