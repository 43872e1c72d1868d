//go:build mage

package main

import (
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Index builds the binary and loads trials/ into the corpus.
func Index() error {
	mg.Deps(Build)
	return sh.RunV(binPath(), "index", "--trials-dir", "trials")
}

// Match runs a deep dive for the patient named by $PATIENT and writes
// reports/<patient>.json.
func Match() error {
	mg.Deps(Build)
	id := os.Getenv("PATIENT")
	if id == "" {
		return mg.Fatal(2, "set PATIENT to a profile ID in patients/")
	}
	return sh.RunV(binPath(), "match", "--patient", id, "--out", "reports/"+id+".json")
}
