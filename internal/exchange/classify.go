// Copyright 2025 The R1FS Agent Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package exchange

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/r1fs-io/r1fs-agent/internal/store"
)

var textExtensions = map[string]struct{}{
	".txt":  {},
	".json": {},
	".yaml": {},
	".yml":  {},
	".csv":  {},
	".md":   {},
	".log":  {},
	".xml":  {},
	".toml": {},
	".ini":  {},
}

// IsTextName reports whether a wrapped file name denotes a text payload.
func IsTextName(name string) bool {
	_, ok := textExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// classify turns a fetched object into a ResolvedCommand. It always closes obj.Body.
// Binary bodies are closed unread, text bodies are read up to limit bytes.
func classify(obj *store.Object, limit int) (ResolvedCommand, error) {
	defer obj.Body.Close()

	rc := ResolvedCommand{
		ID:   obj.ID.String(),
		Name: obj.Name,
		Size: obj.Size,
	}

	if !IsTextName(obj.Name) {
		rc.Class = ClassBinary
		return rc, nil
	}

	// One extra byte tells whether the payload was cut.
	buf, err := io.ReadAll(io.LimitReader(obj.Body, int64(limit)+1))
	if err != nil {
		return rc, fmt.Errorf("read %s: %w", obj.Name, err)
	}
	if len(buf) > limit {
		buf = buf[:limit]
		rc.Truncated = true
	}
	// Do not split a multi-byte rune at the cut.
	for i := 0; rc.Truncated && i < utf8.UTFMax-1 && len(buf) > 0; i++ {
		if r, size := utf8.DecodeLastRune(buf); r != utf8.RuneError || size != 1 {
			break
		}
		buf = buf[:len(buf)-1]
	}

	rc.Class = ClassText
	rc.Preview = strings.ToValidUTF8(string(buf), "�")
	return rc, nil
}
