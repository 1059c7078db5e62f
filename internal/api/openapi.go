// SPDX-License-Identifier: MIT

package api

import _ "embed"

// OpenAPISpec is the HTTP contract, served at /openapi.yaml.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
