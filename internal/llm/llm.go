/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package llm defines the natural-language oracle used when no deterministic
// intent rule matches. Oracle output is untrusted; callers re-validate it.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
)

// Allowed intent kinds the oracle may return.
var AllowedKinds = []string{
	"help", "balance", "history", "status", "address", "greeting",
	"sendability_check", "send", "cashout", "unknown",
}

// SystemPrompt is the fixed instruction contract shared by every oracle backend.
const SystemPrompt = "" +
	"Extract user intent for a crypto assistant. " +
	"Return strict JSON with keys: kind, amount, token, to, beneficiaryName, assistantReply. " +
	"Allowed kind: help,balance,history,status,address,greeting,sendability_check,send,cashout,unknown. " +
	"For token use CELO or cUSD. For unknown, provide short helpful assistantReply."

// Extraction is the structured reply of the oracle.
type Extraction struct {
	Kind            string     `json:"kind"`
	Amount          FlexString `json:"amount"`
	Token           string     `json:"token"`
	To              string     `json:"to"`
	BeneficiaryName string     `json:"beneficiaryName"`
	AssistantReply  string     `json:"assistantReply"`
}

// Client extracts a structured intent from free text.
type Client interface {
	Extract(ctx context.Context, text string) (*Extraction, error)
	Name() string
}

// FlexString accepts a JSON string or number.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// ParseExtraction decodes oracle content, tolerating a fenced code block.
func ParseExtraction(content string) (*Extraction, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var out Extraction
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &out); err != nil {
		return nil, err
	}
	out.Kind = strings.ToLower(strings.TrimSpace(out.Kind))
	return &out, nil
}
