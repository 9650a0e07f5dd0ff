package stores

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

var errFieldTooLong = errors.New("record field length exceeded")

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 65535 {
		return errFieldTooLong
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
