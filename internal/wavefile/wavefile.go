// Package wavefile reads arbitrary waveform samples from text files.
//
// A file holds integers separated by any mix of whitespace and commas.
// Everything after '#' on a line is ignored.
package wavefile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/shaunagostinho/mhs5200/internal/mhs5200"
)

// Parse reads every sample in r. It does not check the count.
func Parse(r io.Reader) ([]int, error) {
	var samples []int
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.FieldsFunc(text, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == '\r'
		})
		for _, f := range fields {
			v, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad sample", line)
			}
			samples = append(samples, v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

// Load reads path and requires exactly mhs5200.ArbitrarySamples samples.
func Load(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	samples, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(samples) != mhs5200.ArbitrarySamples {
		return nil, fmt.Errorf("%s: %d samples, want %d", path, len(samples), mhs5200.ArbitrarySamples)
	}
	return samples, nil
}
