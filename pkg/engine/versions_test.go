package engine

import (
	"testing"
)

func TestParseVersionNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "14", want: "14"},
		{in: "14.2", want: "14.2"},
		{in: "14.2.1", want: "14.2.1"},
		{in: "v8.0.36", want: "8.0.36"},
		{in: "10.0.0-rc1", want: "10.0.0-rc1"},
		{in: "", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "1.2.3.4", wantErr: true},
		{in: "1.-2", wantErr: true},
	}

	for _, tt := range tests {
		v, err := ParseVersionNumber(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseVersionNumber(%q): expected error, got %v", tt.in, v)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseVersionNumber(%q): unexpected error %v", tt.in, err)
			continue
		}
		if got := v.String(); got != tt.want {
			t.Errorf("ParseVersionNumber(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDefaultVersionResolver(t *testing.T) {
	r := DefaultVersionResolver{}

	tests := []struct {
		engine    DatabaseType
		requested string
		managed   bool
		want      string
		wantErr   bool
	}{
		{engine: DatabasePostgreSQL, requested: "14", want: "14.10"},
		{engine: DatabasePostgreSQL, requested: "16", want: "16.1"},
		{engine: DatabasePostgreSQL, requested: "14.10.1", want: "14.10.1"},
		{engine: DatabasePostgreSQL, requested: "9", wantErr: true},
		{engine: DatabaseMySQL, requested: "5.7", want: "5.7.44"},
		{engine: DatabaseMySQL, requested: "5.6", wantErr: true},
		{engine: DatabaseMySQL, requested: "8", want: "8.0.36"},
		{engine: DatabaseMongoDB, requested: "6", managed: true, want: "6.0.13"},
		{engine: DatabaseRedis, requested: "7", want: "7.2.4"},
		{engine: DatabaseRedis, requested: "3", wantErr: true},
		{engine: DatabaseType("oracle"), requested: "19", wantErr: true},
	}

	for _, tt := range tests {
		got, err := r.Resolve(tt.engine, tt.requested, tt.managed)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Resolve(%s, %q): expected error, got %q", tt.engine, tt.requested, got)
			} else if !IsValidation(err) {
				t.Errorf("Resolve(%s, %q): expected a validation error, got %v", tt.engine, tt.requested, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("Resolve(%s, %q): unexpected error %v", tt.engine, tt.requested, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Resolve(%s, %q) = %q, want %q", tt.engine, tt.requested, got, tt.want)
		}
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "My App", want: "myapp"},
		{in: "pg-db_01", want: "pgdb01"},
		{in: "UPPER", want: "upper"},
		{in: "---", want: ""},
	}
	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestManagedDBName(t *testing.T) {
	if got := ManagedDBName("9abc"); got != "db9abc" {
		t.Errorf("ManagedDBName(9abc) = %q", got)
	}
	if got := ManagedDBName("abc9"); got != "abc9" {
		t.Errorf("ManagedDBName(abc9) = %q", got)
	}
	if got := ManagedDBName("!!"); got != "db" {
		t.Errorf("ManagedDBName(!!) = %q", got)
	}
}
