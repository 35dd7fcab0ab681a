package cloud

import (
	"fmt"
	"strings"
)

// ConnectCommand formats the agent's connect-back invocation. The secret
// and display name authenticate and identify the node at the scheduler's
// connect endpoint.
func ConnectCommand(jnlpCommand, schedulerURL, secret, displayName string) string {
	return fmt.Sprintf("%s -noreconnect -workDir \"$CODEBUILD_SRC_DIR\" -url \"%s\" \"%s\" \"%s\"",
		jnlpCommand, schedulerURL, secret, displayName)
}

// Buildspec generates the inline two-phase build specification passed to
// StartBuild. The pre_build phase opportunistically starts a nested
// Docker daemon when the image ships one; the build phase runs the
// connect-back command. Both phases swallow non-zero exits so the build
// always reports a normal exit regardless of the agent's outcome.
func Buildspec(jnlpCommand, schedulerURL, secret, displayName string) string {
	cmd := ConnectCommand(jnlpCommand, schedulerURL, secret, displayName)

	var b strings.Builder
	b.WriteString("version: 0.2\n")
	b.WriteString("phases:\n")
	b.WriteString("  pre_build:\n")
	b.WriteString("    commands:\n")
	b.WriteString("      - which dockerd-entrypoint.sh >/dev/null && dockerd-entrypoint.sh || exit 0\n")
	b.WriteString("  build:\n")
	b.WriteString("    commands:\n")
	b.WriteString("      - " + cmd + " || exit 0\n")
	return b.String()
}
