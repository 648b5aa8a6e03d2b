/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

// Common illegal/default values used by enums.
const (
	IllegalValue = -1
	IllegalName  = "unknown"
	IllegalDesc  = "unknown"
)

// BaseEnum represents a basic enum contract used by domain types.
type BaseEnum interface {
	IsValid() bool
	Number() int
	String() string
	Desc() string
	Name() string
}

// EnumSpec names a single enum constant.
type EnumSpec struct {
	Name string
	Desc string
}

// EnumTable maps enum numbers to their names, so int-backed enums can
// implement BaseEnum with one lookup table.
type EnumTable map[int]EnumSpec

func (t EnumTable) Valid(n int) bool {
	_, ok := t[n]
	return ok
}

func (t EnumTable) Name(n int) string {
	if s, ok := t[n]; ok {
		return s.Name
	}
	return IllegalName
}

func (t EnumTable) Desc(n int) string {
	if s, ok := t[n]; ok {
		return s.Desc
	}
	return IllegalDesc
}
