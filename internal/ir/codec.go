package ir

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// Current schema version - increment when the serialized Program changes
const schemaVersion uint16 = 1

type envelope struct {
	Schema  uint16
	Program *Program
}

// Encode writes p to w as msgpack.
func Encode(w io.Writer, p *Program) error {
	enc := msgpack.NewEncoder(w)
	return enc.Encode(&envelope{Schema: schemaVersion, Program: p})
}

// Decode reads a program written by Encode and validates it.
func Decode(r io.Reader) (*Program, error) {
	var env envelope
	dec := msgpack.NewDecoder(r)
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("decode program: %w", err)
	}
	if env.Schema != schemaVersion {
		return nil, fmt.Errorf("unsupported program schema %d (want %d)", env.Schema, schemaVersion)
	}
	if env.Program == nil {
		return nil, errors.New("decode program: empty payload")
	}
	if err := Validate(env.Program); err != nil {
		return nil, fmt.Errorf("invalid program %q: %w", env.Program.Name, err)
	}
	return env.Program, nil
}

// WriteFile encodes p into path, replacing it atomically.
func WriteFile(path string, p *Program) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), "tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if err := Encode(f, p); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

// ReadFile decodes the program stored at path.
func ReadFile(path string) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}
