package console

import (
	"bufio"
	"io"

	"go.uber.org/zap"

	"github.com/luma/parcel/protocol"
)

// Prompt is written before every line is read.
const Prompt = "> "

// ReadLines reads r a line at a time and hands each line to fn. It stops at
// the first empty line, at EOF, or when fn returns an error. prompt may be
// nil.
func ReadLines(r io.Reader, prompt io.Writer, fn func(line string) error) error {
	scanner := bufio.NewScanner(r)

	for {
		if prompt != nil {
			if _, err := io.WriteString(prompt, Prompt); err != nil {
				return err
			}
		}

		if !scanner.Scan() {
			return scanner.Err()
		}

		line := scanner.Text()
		if line == "" {
			return nil
		}

		if err := fn(line); err != nil {
			return err
		}
	}
}

// ReadPacket reads console lines into a PACKET, one field per line, logging
// each line as it is read.
func ReadPacket(r io.Reader, prompt io.Writer, log *zap.Logger) (*protocol.Packet, error) {
	p := protocol.NewFieldPacket()

	err := ReadLines(r, prompt, func(line string) error {
		log.Info("Read line", zap.String("line", line))
		return p.AddString(line)
	})
	if err != nil {
		return nil, err
	}

	return p, nil
}
