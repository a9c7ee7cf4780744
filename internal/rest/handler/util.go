package handler

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/uptrace/bunrouter"
)

var errBadCursor = errors.New("malformed cursor")

// writeJSON encodes a response body with sonic.
func writeJSON(w http.ResponseWriter, status int, body any) error {
	data, err := sonic.Marshal(body)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(data)

	return err
}

// writeError reports a failure as a JSON body with a stable shape.
func writeError(w http.ResponseWriter, status int, message string) error {
	return writeJSON(w, status, map[string]string{"error": message})
}

// pathID parses the :id path parameter as an unsigned integer.
func pathID(req bunrouter.Request) (uint64, error) {
	return strconv.ParseUint(req.Param("id"), 10, 64)
}

// queryLimit parses the limit query parameter, bounded to [1, max].
func queryLimit(req bunrouter.Request, fallback, maxLimit int) int {
	raw := req.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return fallback
	}

	return min(limit, maxLimit)
}

// encodeCursor packs a cursor struct into an opaque URL-safe token.
func encodeCursor(cursor any) (string, error) {
	data, err := sonic.Marshal(cursor)
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(data), nil
}

// decodeCursor unpacks a cursor token produced by encodeCursor.
func decodeCursor(token string, cursor any) error {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return errBadCursor
	}

	if err := sonic.Unmarshal(data, cursor); err != nil {
		return errBadCursor
	}

	return nil
}
