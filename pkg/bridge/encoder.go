/*
Copyright 2024 The Warmshim Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package bridge

import (
	"bytes"
	"io"
	"strconv"

	"github.com/warmshim/warmshim/pkg/shimconfig"

	"github.com/nuclio/errors"
)

const lineTerminator = "\r\n"

// Encoder frames the two fields of a bridge request
type Encoder interface {

	// Encode writes the event payload and then the handler name in a single write
	Encode(writer io.Writer, payload []byte, handlerName string) error
}

func NewEncoder(framing shimconfig.Framing) (Encoder, error) {
	switch framing {
	case shimconfig.FramingDelimited, "":
		return &DelimitedEncoder{}, nil
	case shimconfig.FramingLengthPrefixed:
		return &LengthPrefixedEncoder{}, nil
	}

	return nil, errors.Errorf("Unknown framing %s", framing)
}

// DelimitedEncoder terminates each field with \r\n. fields containing \r\n are rejected since the
// backend could not tell where they end
type DelimitedEncoder struct{}

func (de *DelimitedEncoder) Encode(writer io.Writer, payload []byte, handlerName string) error {
	if bytes.Contains(payload, []byte(lineTerminator)) {
		return errors.New("Event payload contains a line terminator")
	}

	if bytes.Contains([]byte(handlerName), []byte(lineTerminator)) {
		return errors.New("Handler name contains a line terminator")
	}

	request := bytes.Buffer{}
	request.Grow(len(payload) + len(handlerName) + 2*len(lineTerminator))
	request.Write(payload)
	request.WriteString(lineTerminator)
	request.WriteString(handlerName)
	request.WriteString(lineTerminator)

	return writeAll(writer, request.Bytes())
}

// LengthPrefixedEncoder precedes each field with its decimal length on its own line
type LengthPrefixedEncoder struct{}

func (lpe *LengthPrefixedEncoder) Encode(writer io.Writer, payload []byte, handlerName string) error {
	request := bytes.Buffer{}

	for _, field := range [][]byte{payload, []byte(handlerName)} {
		request.WriteString(strconv.Itoa(len(field)))
		request.WriteString(lineTerminator)
		request.Write(field)
		request.WriteString(lineTerminator)
	}

	return writeAll(writer, request.Bytes())
}

func writeAll(writer io.Writer, data []byte) error {
	for len(data) > 0 {
		bytesWritten, err := writer.Write(data)
		if err != nil {
			return errors.Wrap(err, "Failed to write request")
		}

		data = data[bytesWritten:]
	}

	return nil
}
