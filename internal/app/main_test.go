package app

import (
	stdtesting "testing"

	ductlinetesting "github.com/ductline/ductline/testing"
)

func TestMain(m *stdtesting.M) {
	ductlinetesting.TestMain(m)
}
