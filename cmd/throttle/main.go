// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

// Command throttle runs a shell command repeatedly at a controlled pace.
package main

import (
	"context"
	"os"

	"github.com/ppacer/throttle/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:]))
}
