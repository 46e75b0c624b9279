// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package output

import (
	"context"
	"os/exec"
	"time"
)

// pingTimeout bounds a single reachability check
const pingTimeout = 5 * time.Second

// Ping sends one ICMP echo through the system ping binary and reports
// whether the host answered. Any failure, including a missing binary or
// the ping timeout, counts as unreachable.
func Ping(ctx context.Context, host string) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ping", "-c", "1", "-W", "2", host)
	if err := cmd.Run(); err != nil {
		return false
	}
	return ctx.Err() == nil
}
