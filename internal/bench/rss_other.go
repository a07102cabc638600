// Copyright 2025 The Probekit Authors
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

//go:build !linux

package bench

import "github.com/pkg/errors"

// ErrNoRSS reports that resident-set sampling is unavailable on this
// platform; time measurements still work.
var ErrNoRSS = errors.New("resident set sampling requires linux")

func ResidentSetKB() (uint64, error) { return 0, ErrNoRSS }

func PeakResidentSetKB() (uint64, error) { return 0, ErrNoRSS }
