package subscription

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"zephyr/pkg/protocol"
)

// Reads "class,instance,recipient" lines. Lines starting with '!' name
// subscriptions to remove; '#' starts a comment.
func ParseFile(r io.Reader) (subs []protocol.Subscription, removals []protocol.Subscription, err error) {
	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		remove := strings.HasPrefix(line, "!")
		line = strings.TrimPrefix(line, "!")

		fields := strings.Split(line, ",")
		if len(fields) != 3 {
			err = fmt.Errorf("line %d: expected class,instance,recipient", lineNumber)
			return
		}
		sub := protocol.Subscription{
			Class:     strings.TrimSpace(fields[0]),
			Instance:  strings.TrimSpace(fields[1]),
			Recipient: strings.TrimSpace(fields[2]),
		}
		if sub.Class == "" || sub.Instance == "" {
			err = fmt.Errorf("line %d: class and instance are required", lineNumber)
			return
		}

		if remove {
			removals = append(removals, sub)
		} else {
			subs = append(subs, sub)
		}
	}
	err = scanner.Err()
	if err != nil {
		err = fmt.Errorf("failed to read subscriptions: %w", err)
		return
	}
	return
}

// Writes subscriptions in the format ParseFile reads
func WriteFile(w io.Writer, subs []protocol.Subscription) (err error) {
	for _, sub := range subs {
		_, err = fmt.Fprintf(w, "%s,%s,%s\n", sub.Class, sub.Instance, sub.Recipient)
		if err != nil {
			return
		}
	}
	return
}
