package logger

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// DefaultTailLines is the number of lines GET /log returns.
const DefaultTailLines = 800

// Tail returns the last n lines of the file at path, joined with "\n".
// A missing file is reported with an error satisfying errors.Is(err, os.ErrNotExist).
func Tail(path string, n int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if n <= 0 {
		return "", nil
	}

	// ring buffer of the last n lines
	ring := make([]string, n)
	count := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		ring[count%n] = scanner.Text()
		count++
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read log file: %w", err)
	}

	if count <= n {
		return strings.Join(ring[:count], "\n"), nil
	}

	start := count % n
	lines := make([]string, 0, n)
	lines = append(lines, ring[start:]...)
	lines = append(lines, ring[:start]...)
	return strings.Join(lines, "\n"), nil
}
