package render_test

import (
	"fmt"
	"strings"

	"github.com/matzehuels/flatcargo/pkg/lock"
	"github.com/matzehuels/flatcargo/pkg/render"
)

func ExampleToDOT() {
	g, err := lock.Parse([]byte(`version = 3
[[package]]
name = "app"
version = "0.1.0"
dependencies = ["log"]

[[package]]
name = "log"
version = "0.4.22"
source = "registry+https://github.com/rust-lang/crates.io-index"
checksum = "a7a70ba024b9dc04c27ea2f0c0548feb474ec5c54bba33a7f72f873a39d07b24"
`))
	if err != nil {
		panic(err)
	}

	dot := render.ToDOT(g, render.Options{})
	for _, line := range strings.Split(dot, "\n") {
		if strings.Contains(line, "->") {
			fmt.Println(strings.TrimSpace(line))
		}
	}
	// Output:
	// "app 0.1.0" -> "log 0.4.22";
}
