package telemetry

import (
	"math"
	"sync"
	"testing"

	"go.viam.com/test"
)

func TestTableDefaults(t *testing.T) {
	table := NewTable(map[string]interface{}{"speed": math.NaN(), "state": "idle"})
	test.That(t, table.Get("state"), test.ShouldEqual, "idle")
	test.That(t, table.Get("missing"), test.ShouldBeNil)

	table.Set("state", "driving")
	test.That(t, table.Get("state"), test.ShouldEqual, "driving")

	all := table.All()
	test.That(t, all, test.ShouldHaveLength, 2)
	test.That(t, all["state"], test.ShouldEqual, "driving")

	all["state"] = "mutated"
	test.That(t, table.Get("state"), test.ShouldEqual, "driving")
}

func TestTableNumbers(t *testing.T) {
	table := NewTable(nil)
	_, ok := table.Number("0 Speed")
	test.That(t, ok, test.ShouldBeFalse)

	table.PutNumber("0 Speed", 3.5)
	v, ok := table.Number("0 Speed")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, v, test.ShouldEqual, 3.5)

	table.Set("label", "x")
	_, ok = table.Number("label")
	test.That(t, ok, test.ShouldBeFalse)
}

func TestTableConcurrentWriters(t *testing.T) {
	table := NewTable(nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				table.PutNumber("shared", float64(j))
				table.All()
			}
		}(i)
	}
	wg.Wait()
	v, ok := table.Number("shared")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, v, test.ShouldEqual, 99.0)
}
