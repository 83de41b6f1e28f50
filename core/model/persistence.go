package model

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"os"
)

// modelMagic prefixes every persisted model stream. Loading a foreign or
// truncated file fails on the header instead of producing a half-decoded
// forest.
var modelMagic = []byte("ccfs\x01")

// SaveModel writes a model to a file: the magic header followed by the
// gob-encoded model.
//
// Example:
//
//	clf := ccf.NewClassifier(...)
//	// ... fit ...
//	err := model.SaveModel(clf, "forest.gob")
func SaveModel(model interface{}, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	return SaveModelToWriter(model, file)
}

// LoadModel reads a model from a file written by SaveModel. The
// destination must be a pointer to the model type.
func LoadModel(model interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return LoadModelFromReader(model, file)
}

// SaveModelToWriter writes the magic header and the gob-encoded model to w.
func SaveModelToWriter(model interface{}, w io.Writer) error {
	if _, err := w.Write(modelMagic); err != nil {
		return fmt.Errorf("failed to write model header: %w", err)
	}
	encoder := gob.NewEncoder(w)
	if err := encoder.Encode(model); err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	return nil
}

// LoadModelFromReader verifies the magic header and decodes the model
// from r.
func LoadModelFromReader(model interface{}, r io.Reader) error {
	header := make([]byte, len(modelMagic))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("failed to read model header: %w", err)
	}
	if !bytes.Equal(header, modelMagic) {
		return fmt.Errorf("not a ccfs model stream (header %q)", header)
	}
	decoder := gob.NewDecoder(r)
	if err := decoder.Decode(model); err != nil {
		return fmt.Errorf("failed to decode model: %w", err)
	}
	return nil
}
