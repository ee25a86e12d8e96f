package httpapi

import (
	"io"
	"net/http"
	"strings"

	"github.com/BrandonDHaskell/rollcall/internal/wire"
)

// maxRequestBody caps the request body size for both protobuf and JSON
// payloads. A submission is well under 1 KiB either way.
const maxRequestBody = 8192

const protobufContentType = "application/x-protobuf"

// isProtobuf returns true if the request's Content-Type indicates a
// protobuf payload.
func isProtobuf(r *http.Request) bool {
	return isProtobufType(r.Header.Get("Content-Type"))
}

func isProtobufType(ct string) bool {
	ct = strings.TrimSpace(strings.Split(ct, ";")[0])
	return ct == protobufContentType ||
		ct == "application/protobuf" ||
		ct == "application/octet-stream"
}

// wantsProtobuf reports whether the response should be a protobuf Struct:
// either the client sent one or asked for one.
func wantsProtobuf(r *http.Request) bool {
	if isProtobuf(r) {
		return true
	}
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		if isProtobufType(part) {
			return true
		}
	}
	return false
}

// readBody decodes a JSON or protobuf Struct body into v. Unknown fields are
// rejected in both encodings.
func readBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return err
	}
	if isProtobuf(r) {
		return wire.Unmarshal(body, v)
	}
	return wire.DecodeJSON(body, v)
}

// writeProto encodes v as a protobuf Struct with the given HTTP status.
func writeProto(w http.ResponseWriter, status int, v any) {
	data, err := wire.Marshal(v)
	if err != nil {
		http.Error(w, "proto marshal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", protobufContentType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
