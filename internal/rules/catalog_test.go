package rules

import (
	"context"
	"errors"
	"testing"
	"time"
)

const listTopic = "sistema/regras/lista"

func TestCatalogHandleMessage(t *testing.T) {
	c := NewCatalog(listTopic, nil)
	if c.Loaded() || c.Rules() != nil {
		t.Fatal("new catalog is not empty")
	}

	var notified [][]Rule
	c.OnChange(func(r []Rule) { notified = append(notified, r) })

	c.HandleMessage(listTopic, []byte(`[{"id":1,"name":"Cooling","measurement":"dht11","field":"temperature",`+
		`"range":"5m","operator":">","threshold":28.5,"action_topic":"esp32_02/gpio/2/set","action_payload":"ON"}]`))

	rules := c.Rules()
	if len(rules) != 1 || rules[0].ID != "1" || rules[0].Name != "Cooling" {
		t.Fatalf("Rules() = %+v", rules)
	}
	if len(notified) != 1 {
		t.Errorf("notifications = %d, want 1", len(notified))
	}
}

func TestCatalogIgnoresOtherTopicsAndMalformed(t *testing.T) {
	c := NewCatalog(listTopic, nil)
	c.HandleMessage(listTopic, []byte(`[{"id":1,"name":"a"}]`))

	c.HandleMessage("sistema/dashboard/status", []byte(`[]`))
	c.HandleMessage(listTopic, []byte(`not json`))

	if rules := c.Rules(); len(rules) != 1 {
		t.Errorf("Rules() = %+v, want previous snapshot kept", rules)
	}
}

func TestCatalogEmptyList(t *testing.T) {
	c := NewCatalog(listTopic, nil)
	c.HandleMessage(listTopic, []byte(`[]`))

	rules := c.Rules()
	if !c.Loaded() || rules == nil || len(rules) != 0 {
		t.Errorf("Rules() = %#v, Loaded() = %v, want loaded empty list", rules, c.Loaded())
	}
}

func TestCatalogWait(t *testing.T) {
	c := NewCatalog(listTopic, nil)

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.HandleMessage(listTopic, []byte(`[{"id":"x","name":"n"}]`))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rules, err := c.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if len(rules) != 1 || rules[0].ID != "x" {
		t.Errorf("Wait() = %+v", rules)
	}
}

func TestCatalogWaitTimeout(t *testing.T) {
	c := NewCatalog(listTopic, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := c.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want DeadlineExceeded", err)
	}
}
