package adt

import (
	"crypto/tls"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestNewConfig(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want Config
	}{
		{
			name: "defaults",
			want: Config{Client: "001", Language: "EN", AuthType: AuthBasic, Timeout: DefaultTimeout},
		},
		{
			name: "basic auth with client and language",
			opts: []Option{WithBasicAuth("dev", "secret"), WithClient("100"), WithLanguage("DE")},
			want: Config{Client: "100", Language: "DE", AuthType: AuthBasic, Username: "dev", Password: "secret", Timeout: DefaultTimeout},
		},
		{
			name: "jwt",
			opts: []Option{WithJWT("tok")},
			want: Config{Client: "001", Language: "EN", AuthType: AuthJWT, JWTToken: "tok", Timeout: DefaultTimeout},
		},
		{
			name: "insecure and timeout",
			opts: []Option{WithInsecureSkipVerify(), WithTimeout(90 * time.Second)},
			want: Config{Client: "001", Language: "EN", AuthType: AuthBasic, InsecureSkipVerify: true, Timeout: 90 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewConfig("https://sap.example.com:44300", tt.opts...)

			if got.BaseURL != "https://sap.example.com:44300" {
				t.Errorf("BaseURL = %v", got.BaseURL)
			}
			if got.Client != tt.want.Client {
				t.Errorf("Client = %v, want %v", got.Client, tt.want.Client)
			}
			if got.Language != tt.want.Language {
				t.Errorf("Language = %v, want %v", got.Language, tt.want.Language)
			}
			if got.AuthType != tt.want.AuthType {
				t.Errorf("AuthType = %v, want %v", got.AuthType, tt.want.AuthType)
			}
			if got.Username != tt.want.Username || got.Password != tt.want.Password {
				t.Errorf("credentials = %v/%v, want %v/%v", got.Username, got.Password, tt.want.Username, tt.want.Password)
			}
			if got.JWTToken != tt.want.JWTToken {
				t.Errorf("JWTToken = %v, want %v", got.JWTToken, tt.want.JWTToken)
			}
			if got.InsecureSkipVerify != tt.want.InsecureSkipVerify {
				t.Errorf("InsecureSkipVerify = %v, want %v", got.InsecureSkipVerify, tt.want.InsecureSkipVerify)
			}
			if got.Timeout != tt.want.Timeout {
				t.Errorf("Timeout = %v, want %v", got.Timeout, tt.want.Timeout)
			}
			if got.Logger == nil {
				t.Error("Logger should default to a discard logger")
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		cfg       *Config
		wantField string
	}{
		{"ok basic", NewConfig("https://sap:443", WithBasicAuth("u", "p")), ""},
		{"ok jwt", NewConfig("https://sap:443", WithJWT("t")), ""},
		{"missing url", NewConfig("", WithBasicAuth("u", "p")), "url"},
		{"relative url", NewConfig("sap-host", WithBasicAuth("u", "p")), "url"},
		{"missing user", NewConfig("https://sap:443", WithBasicAuth("", "p")), "username"},
		{"missing password", NewConfig("https://sap:443", WithBasicAuth("u", "")), "password"},
		{"missing jwt", NewConfig("https://sap:443", WithJWT("")), "jwt_token"},
		{"bad auth type", &Config{BaseURL: "https://sap:443", AuthType: "kerberos"}, "auth_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() = %v, want *ConfigError", err)
			}
			if cfgErr.Field != tt.wantField {
				t.Errorf("Field = %v, want %v", cfgErr.Field, tt.wantField)
			}
		})
	}
}

func TestParseAuthType(t *testing.T) {
	tests := []struct {
		in      string
		want    AuthType
		wantErr bool
	}{
		{"", AuthBasic, false},
		{"Basic", AuthBasic, false},
		{"jwt", AuthJWT, false},
		{"bearer", AuthJWT, false},
		{"saml", "", true},
	}

	for _, tt := range tests {
		got, err := ParseAuthType(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAuthType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseAuthType(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConfig_AuthHeaders(t *testing.T) {
	basic := NewConfig("https://sap:443", WithBasicAuth("dev", "secret")).authHeaders()
	req := &http.Request{Header: basic}
	user, pass, ok := req.BasicAuth()
	if !ok || user != "dev" || pass != "secret" {
		t.Errorf("basic auth = %v/%v/%v", user, pass, ok)
	}

	bearer := NewConfig("https://sap:443", WithJWT("tok")).authHeaders()
	if bearer.Get("Authorization") != "Bearer tok" {
		t.Errorf("Authorization = %v", bearer.Get("Authorization"))
	}

	none := NewConfig("https://sap:443").authHeaders()
	if none.Get("Authorization") != "" {
		t.Errorf("expected no Authorization header, got %v", none.Get("Authorization"))
	}
}

func TestNewHTTPClient(t *testing.T) {
	cfg := NewConfig("https://sap.example.com:44300", WithInsecureSkipVerify())
	client := cfg.NewHTTPClient()

	if client == nil {
		t.Fatal("NewHTTPClient returned nil")
	}
	if client.Jar != nil {
		t.Error("cookies are carried by the session, the client should have no jar")
	}
	tr, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("Transport = %T, want *http.Transport", client.Transport)
	}
	want := &tls.Config{InsecureSkipVerify: true}
	if tr.TLSClientConfig.InsecureSkipVerify != want.InsecureSkipVerify {
		t.Error("InsecureSkipVerify not propagated")
	}

	verifying := NewConfig("https://sap.example.com:44300").NewHTTPClient()
	if verifying.Transport.(*http.Transport).TLSClientConfig.InsecureSkipVerify {
		t.Error("TLS verification should be on by default")
	}
}
