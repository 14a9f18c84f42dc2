package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/nox-kernel/central/internal/logging"
)

// ProcessTransport spawns a local runner binary and streams its stdout
// directly — no HTTP involved. The runner reads a rendered chat-template
// prompt from stdin and writes tokens to stdout.
type ProcessTransport struct {
	Binary    string
	ModelPath string
	ExtraArgs []string

	landlockOnce sync.Once
}

func (t *ProcessTransport) Send(ctx context.Context, payload map[string]any, stream bool, onChunk func(string)) (*string, map[string]any, error) {
	prompt := payloadToPrompt(payload)
	if prompt == "" {
		return nil, nil, newSubprocessError(t.Binary, "no prompt content found for local runner payload")
	}

	t.landlockOnce.Do(func() { warnIfNoLandlock() })

	options, _ := payload["options"].(map[string]any)
	maxTokens := intOr(options, "num_predict", 256)
	ctxSize := intOr(options, "num_ctx", 1024)
	batch := intOr(options, "num_batch", 32)

	args := []string{
		"-raw",
		"-max-tokens", strconv.Itoa(maxTokens),
		"-ctx", strconv.Itoa(ctxSize),
		"-batch", strconv.Itoa(batch),
	}
	if temperature, ok := options["temperature"]; ok && temperature != nil {
		args = append(args, "-temp", fmt.Sprintf("%v", temperature))
	}
	if t.ModelPath != "" {
		args = append(args, "-model", t.ModelPath)
	}
	args = append(args, t.ExtraArgs...)

	cmd := exec.CommandContext(ctx, t.Binary, args...)
	cmd.Env = os.Environ()
	if numThreads, ok := options["num_thread"]; ok && numThreads != nil {
		cmd.Env = append(cmd.Env, fmt.Sprintf("NOX_NUM_THREADS=%v", numThreads))
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, newSubprocessError(t.Binary, fmt.Sprintf("failed to open stdin: %v", err))
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, newSubprocessError(t.Binary, fmt.Sprintf("failed to open stdout: %v", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, newSubprocessError(t.Binary, fmt.Sprintf("failed to open stderr: %v", err))
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, newSubprocessError(t.Binary, fmt.Sprintf("failed to launch local runner %s: %v", t.Binary, err))
	}

	go func() {
		io.WriteString(stdin, prompt)
		stdin.Close()
	}()

	var stderrBuf bytes.Buffer
	stderrDone := make(chan struct{})
	go func() {
		io.Copy(&stderrBuf, stderr)
		close(stderrDone)
	}()

	var acc strings.Builder
	had := false
	if stream {
		buf := make([]byte, 1)
		for {
			n, readErr := stdout.Read(buf)
			if n > 0 {
				chunk := string(buf[:n])
				acc.WriteString(chunk)
				had = true
				onChunk(chunk)
			}
			if readErr != nil {
				break
			}
		}
	} else {
		data, _ := io.ReadAll(stdout)
		if len(data) > 0 {
			acc.Write(data)
			had = true
		}
	}

	<-stderrDone
	waitErr := cmd.Wait()
	if waitErr != nil {
		detail := strings.TrimSpace(stderrBuf.String())
		if detail == "" {
			detail = acc.String()
		}
		return nil, nil, newSubprocessError(t.Binary, fmt.Sprintf("local runner exited with error: %v: %s", waitErr, detail))
	}

	text := acc.String()
	return ptrIfAny(text, had), map[string]any{"stderr": stderrBuf.String()}, nil
}

func intOr(options map[string]any, key string, fallback int) int {
	if options == nil {
		return fallback
	}
	v, ok := options[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		if n > 0 {
			return n
		}
	case float64:
		if n > 0 {
			return int(n)
		}
	}
	return fallback
}

func warnIfNoLandlock() {
	if !isLandlockAvailable() {
		logging.Logger().Warn("local runner is starting without Landlock filesystem confinement")
	}
}
