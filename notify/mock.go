// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package notify

import (
	"bytes"
	"context"
	"sync"
)

// Mock sends message into a string slice in memory. It implements Sender
// interface. Useful mostly for testing.
type Mock struct {
	sync.Mutex
	buf *[]string
}

// NewMock initialized Mock for given string slice buffor.
func NewMock(buffor *[]string) *Mock {
	return &Mock{buf: buffor}
}

// Send executes the template and appends the result onto internal Mock
// buffor.
func (m *Mock) Send(_ context.Context, tmpl Template, data MsgData) error {
	var msgBuff bytes.Buffer
	if writeErr := tmpl.Execute(&msgBuff, data); writeErr != nil {
		return writeErr
	}
	m.Lock()
	defer m.Unlock()
	*m.buf = append(*m.buf, msgBuff.String())
	return nil
}
