// Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
//
// WSO2 LLC. licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

package session

import (
	"fmt"

	nanoid "github.com/jaevor/go-nanoid"
)

const (
	CodeLength   = 6
	CodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// CodeGenerator returns a fresh candidate session code on every call.
type CodeGenerator func() string

func NewCodeGenerator() (CodeGenerator, error) {
	gen, err := nanoid.CustomASCII(CodeAlphabet, CodeLength)
	if err != nil {
		return nil, fmt.Errorf("code generator: %w", err)
	}
	return gen, nil
}

// IsValidCode checks a code against [A-Z0-9]{6}.
func IsValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
