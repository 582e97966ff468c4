package test

import "testing"

func AssertEqual(t *testing.T, expected, actual any) bool {
	t.Helper()

	if expected != actual {
		t.Errorf(""+
			"Not equal: \n"+
			"Expected: %v\n"+
			"Actual: %v", expected, actual)
		return false
	}

	return true
}

func AssertTrue(t *testing.T, value bool) bool {
	t.Helper()

	if !value {
		t.Error("Expected true, got false")
		return false
	}

	return true
}

func AssertNoError(t *testing.T, err error) bool {
	t.Helper()

	if err != nil {
		t.Errorf("Unexpected error: %v", err)
		return false
	}

	return true
}
