package testutil

import (
	"fmt"
	"net/http"
	"strings"
)

// StreamRecords answers a completion with one data line per record followed
// by the [DONE] sentinel.
func StreamRecords(records ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chunks := make([]string, 0, len(records)+1)
		for _, record := range records {
			chunks = append(chunks, "data: "+record+"\n\n")
		}
		chunks = append(chunks, "data: [DONE]\n\n")
		writeChunks(w, chunks)
	}
}

// StreamRaw writes chunks exactly as given, flushing after each one.
func StreamRaw(chunks ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeChunks(w, chunks)
	}
}

// StreamThenHold writes records and then keeps the connection open until the
// client goes away. Written is closed once the records are flushed.
func StreamThenHold(written chan<- struct{}, records ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chunks := make([]string, 0, len(records))
		for _, record := range records {
			chunks = append(chunks, "data: "+record+"\n\n")
		}
		writeChunks(w, chunks)
		if written != nil {
			close(written)
		}
		<-r.Context().Done()
	}
}

// StreamUntilReleased writes head, closes written, then waits for release
// before writing tail and the [DONE] sentinel. It gives up quietly when the
// client goes away first.
func StreamUntilReleased(written chan<- struct{}, release <-chan struct{}, head []string, tail ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flush := startStream(w)
		for _, record := range head {
			writeRecord(w, flush, record)
		}
		if written != nil {
			close(written)
		}
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		for _, record := range tail {
			writeRecord(w, flush, record)
		}
		writeRecord(w, flush, "[DONE]")
	}
}

// DeltaRecord builds a chat-completion chunk carrying content.
func DeltaRecord(content string) string {
	return fmt.Sprintf(`{"choices":[{"delta":{"content":%q}}]}`, content)
}

// StopRecord builds a chunk with finish_reason "stop".
func StopRecord() string {
	return `{"choices":[{"delta":{},"finish_reason":"stop"}]}`
}

// SSE joins records into a complete event-stream body ending in [DONE].
func SSE(records ...string) string {
	var b strings.Builder
	for _, record := range records {
		b.WriteString("data: ")
		b.WriteString(record)
		b.WriteString("\n\n")
	}
	b.WriteString("data: [DONE]\n\n")
	return b.String()
}

func writeChunks(w http.ResponseWriter, chunks []string) {
	flush := startStream(w)
	for _, chunk := range chunks {
		_, _ = w.Write([]byte(chunk))
		flush()
	}
}

func startStream(w http.ResponseWriter) func() {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	return func() {
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func writeRecord(w http.ResponseWriter, flush func(), record string) {
	_, _ = w.Write([]byte("data: " + record + "\n\n"))
	flush()
}
