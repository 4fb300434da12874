package surrogate

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestSurrogate(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Surrogate Suite")
}
