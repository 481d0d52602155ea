//go:build !unix

package executor

import "os/exec"

// Without process groups the default cancel, which kills the direct child,
// is used.
func killProcessGroupOnCancel(*exec.Cmd) {}
