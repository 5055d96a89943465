// Command stubtranscriber is a local stand-in for the transcription API.
// It accepts the service's multipart requests and returns a canned result,
// useful for running the service without a real speech backend.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"net/http"
	"time"
)

type transcriptionResponse struct {
	Text        string    `json:"text"`
	Confidence  float32   `json:"confidence"`
	Language    string    `json:"language"`
	Duration    float64   `json:"duration"`
	ProcessedAt time.Time `json:"processed_at"`
}

var (
	delay = flag.Duration("delay", 200*time.Millisecond, "simulated processing time per request")
	text  = flag.String("text", "this is a stub transcription", "text returned for every request")
)

func transcribeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	sessionID := r.FormValue("session_id")
	requestID := r.FormValue("request_id")
	partial := r.FormValue("partial")
	language := r.FormValue("language")

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	log.Printf("transcription request: session=%s request=%s partial=%s language=%s file=%s size=%d",
		sessionID, requestID, partial, language, header.Filename, len(audioData))

	time.Sleep(*delay)

	response := transcriptionResponse{
		Text:        *text,
		Confidence:  0.95,
		Language:    language,
		Duration:    float64(len(audioData)) / 32000.0, // 16 kHz mono 16-bit
		ProcessedAt: time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

func main() {
	addr := flag.String("addr", ":9000", "listen address")
	flag.Parse()

	http.HandleFunc("/transcribe", transcribeHandler)

	log.Printf("stub transcription server listening on %s", *addr)
	log.Printf("point transcription.endpoint at http://localhost%s/transcribe", *addr)

	if err := http.ListenAndServe(*addr, nil); err != nil {
		log.Fatal("server failed to start:", err)
	}
}
