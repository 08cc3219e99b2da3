package commsutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes one JSON document into v. Numbers landing in
// interface{} values stay json.Number so large integers keep their precision.
func DecodePayload(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("unexpected data after JSON document")
	}
	return nil
}
