package script

import (
	"io/fs"
	"reflect"
	"strings"

	"github.com/gh-nvat/gitops-policypack/src/pkg/policy/access"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// AccessImportPath is the import path policy scripts use for the accessor helpers.
const AccessImportPath = "github.com/gh-nvat/gitops-policypack/src/pkg/policy/access"

// allowedPackages are the standard library packages a policy script may import.
// None of them reaches the filesystem, the network or the process, so a policy
// stays a pure function of the request.
var allowedPackages = []string{
	"bufio",
	"bytes",
	"container/heap",
	"container/list",
	"container/ring",
	"context",
	"crypto/md5",
	"crypto/rand",
	"crypto/sha1",
	"crypto/sha256",
	"crypto/sha512",
	"crypto/subtle",
	"encoding/base32",
	"encoding/base64",
	"encoding/binary",
	"encoding/csv",
	"encoding/hex",
	"encoding/json",
	"encoding/pem",
	"encoding/xml",
	"errors",
	"fmt",
	"hash",
	"hash/adler32",
	"hash/crc32",
	"hash/crc64",
	"hash/fnv",
	"html",
	"io",
	"maps",
	"math",
	"math/big",
	"math/bits",
	"math/cmplx",
	"math/rand",
	"math/rand/v2",
	"net/netip",
	"net/url",
	"path",
	"regexp",
	"regexp/syntax",
	"slices",
	"sort",
	"strconv",
	"strings",
	"sync",
	"sync/atomic",
	"time",
	"unicode",
	"unicode/utf16",
	"unicode/utf8",
}

// deniedSymbols are removed from otherwise allowed packages.
var deniedSymbols = map[string][]string{
	"time": {"LoadLocation"}, // reads the zoneinfo database from disk
}

// Symbols is the symbol table available to policy scripts: the allowed
// standard library plus the accessor helpers.
var Symbols = buildSymbols()

// packageNames maps every importable path to its package name.
var packageNames = indexPackageNames(Symbols)

func buildSymbols() interp.Exports {
	allowed := make(map[string]bool, len(allowedPackages))
	for _, importPath := range allowedPackages {
		allowed[importPath] = true
	}

	symbols := interp.Exports{}
	for key, values := range stdlib.Symbols {
		importPath, _ := splitKey(key)
		if !allowed[importPath] {
			continue
		}
		if denied, ok := deniedSymbols[importPath]; ok {
			filtered := make(map[string]reflect.Value, len(values))
			for name, value := range values {
				filtered[name] = value
			}
			for _, name := range denied {
				delete(filtered, name)
			}
			values = filtered
		}
		symbols[key] = values
	}
	symbols[AccessImportPath+"/access"] = map[string]reflect.Value{
		"Field":  reflect.ValueOf(access.Field),
		"Map":    reflect.ValueOf(access.Map),
		"Object": reflect.ValueOf(access.Object),
		"Slice":  reflect.ValueOf(access.Slice),
		"Bool":   reflect.ValueOf(access.Bool),
		"String": reflect.ValueOf(access.String),
	}
	return symbols
}

// splitKey splits a symbol table key "import/path/name" into path and package name.
func splitKey(key string) (string, string) {
	i := strings.LastIndex(key, "/")
	if i < 0 {
		return key, key
	}
	return key[:i], key[i+1:]
}

func indexPackageNames(symbols interp.Exports) map[string]string {
	names := make(map[string]string, len(symbols))
	for key := range symbols {
		importPath, name := splitKey(key)
		names[importPath] = name
	}
	return names
}

// IsImportable reports whether a policy script may import importPath.
func IsImportable(importPath string) bool {
	_, ok := packageNames[importPath]
	return ok
}

// PackageName returns the package name of an importable path, e.g. "rand" for
// "math/rand/v2".
func PackageName(importPath string) (string, bool) {
	name, ok := packageNames[importPath]
	return name, ok
}

// noSources keeps the interpreter from resolving imports from disk, so a
// script only ever sees Symbols.
type noSources struct{}

func (noSources) Open(name string) (fs.File, error) {
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}
