// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package multicast

import (
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
)

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatal(err)
	}

	if err := (Config{Reliable: false}).Validate(); err != nil {
		t.Fatalf("Best-effort config is invalid: %v", err)
	}

	broken := Config{
		Reliable:    true,
		SynBackoff:  0.5,
		SynInterval: 0,
		SynTimeout:  -time.Second,
		NakDepth:    0,
		NakInterval: -time.Second,
		NakTimeout:  -2 * time.Second,
	}

	err := broken.Validate()
	if err == nil {
		t.Fatal("Broken config is valid")
	}

	merr, ok := err.(*multierror.Error)
	if !ok {
		t.Fatalf("Expected a multierror, got %T", err)
	} else if l := len(merr.Errors); l != 6 {
		t.Fatalf("Expected 6 errors, got %d: %v", l, merr)
	}
}
