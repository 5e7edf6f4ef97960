/*
Copyright 2025 Remit Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package remit

// ProcessedSet remembers the reference numbers admitted during one run.
// It is not safe for concurrent use; a run processes intents one at a time.
type ProcessedSet struct {
	seen map[string]struct{}
}

func NewProcessedSet() *ProcessedSet {
	return &ProcessedSet{seen: make(map[string]struct{})}
}

// Admit records reference and reports whether it was new to this run.
func (s *ProcessedSet) Admit(reference string) bool {
	if _, ok := s.seen[reference]; ok {
		return false
	}
	s.seen[reference] = struct{}{}
	return true
}

func (s *ProcessedSet) Len() int {
	return len(s.seen)
}
