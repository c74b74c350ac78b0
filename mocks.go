/*
Copyright 2024 Ledgerscan Authors.

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

package ledgerscan

import (
	"context"
)

type MockLedgerscan struct {
	Ledgerscan
	mockGetDocumentStatus func(string) (*DocumentStatusResult, error)
}

func (m *MockLedgerscan) GetDocumentStatus(id string) (*DocumentStatusResult, error) {
	if m.mockGetDocumentStatus != nil {
		return m.mockGetDocumentStatus(id)
	}
	return m.Ledgerscan.GetDocumentStatus(context.Background(), id)
}
