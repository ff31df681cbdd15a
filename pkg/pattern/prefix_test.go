package pattern

import "testing"

func TestAnchoredPrefixIsMandatoryByDefault(t *testing.T) {
	anchored, err := MustCompile("ping").Anchor(Prefix{Nickname: "Bot"})
	if err != nil {
		t.Fatalf("Anchor error: %v", err)
	}

	for _, body := range []string{"Bot: ping", "Bot, ping", "Bot ping", "bot: ping", "!ping", "$ping", "%ping", "@ping"} {
		if _, ok := anchored.Match(body); !ok {
			t.Fatalf("expected %q to match", body)
		}
	}

	for _, body := range []string{"ping", "Botping", "Bot: ping now", "#ping", "Other: ping"} {
		if _, ok := anchored.Match(body); ok {
			t.Fatalf("expected %q not to match", body)
		}
	}
}

func TestAnchoredOptionalPrefix(t *testing.T) {
	anchored, err := MustCompile("ping").Anchor(Prefix{Nickname: "Bot", Optional: true})
	if err != nil {
		t.Fatalf("Anchor error: %v", err)
	}

	for _, body := range []string{"ping", "Bot: ping", "!ping"} {
		if _, ok := anchored.Match(body); !ok {
			t.Fatalf("expected %q to match", body)
		}
	}
}

func TestAnchoredCapturesAfterPrefix(t *testing.T) {
	anchored, err := MustCompile("weather :city").Anchor(Prefix{Nickname: "Bot"})
	if err != nil {
		t.Fatalf("Anchor error: %v", err)
	}

	for _, body := range []string{"Bot: weather paris", "Bot,weather paris", "!weather paris"} {
		got, ok := anchored.Match(body)
		if !ok {
			t.Fatalf("expected %q to match", body)
		}
		if got.Get("city") != "paris" {
			t.Fatalf("city = %q, want paris", got.Get("city"))
		}
	}
}

func TestAnchoredCaseSensitive(t *testing.T) {
	anchored, err := MustCompile("ping").Anchor(Prefix{Nickname: "Bot", CaseSensitive: true})
	if err != nil {
		t.Fatalf("Anchor error: %v", err)
	}

	if _, ok := anchored.Match("Bot: ping"); !ok {
		t.Fatal("expected exact case to match")
	}
	if _, ok := anchored.Match("bot: PING"); ok {
		t.Fatal("expected case-sensitive prefix to reject lowercase nickname")
	}
}

func TestPrefixQuotesNicknameAndSigils(t *testing.T) {
	anchored, err := MustCompile("ping").Anchor(Prefix{Nickname: "B.t", Sigils: "^-]"})
	if err != nil {
		t.Fatalf("Anchor error: %v", err)
	}

	for _, body := range []string{"B.t: ping", "^ping", "-ping", "]ping"} {
		if _, ok := anchored.Match(body); !ok {
			t.Fatalf("expected %q to match", body)
		}
	}
	if _, ok := anchored.Match("Bxt: ping"); ok {
		t.Fatal("nickname dot must be literal")
	}
	if _, ok := anchored.Match("!ping"); ok {
		t.Fatal("custom sigils replace the defaults")
	}
}

func TestPrefixWithoutNickname(t *testing.T) {
	anchored, err := MustCompile("ping").Anchor(Prefix{})
	if err != nil {
		t.Fatalf("Anchor error: %v", err)
	}
	if _, ok := anchored.Match("!ping"); !ok {
		t.Fatal("expected sigil to match without nickname")
	}
}

func TestSearchFindsPatternAnywhereAfterPrefix(t *testing.T) {
	group, err := MustCompile("ping").Search(Prefix{Nickname: "Bot"})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if _, ok := group.Match("Bot: can you ping the server"); !ok {
		t.Fatal("expected prefixed search to match")
	}
	if _, ok := group.Match("can you ping the server"); ok {
		t.Fatal("expected search without prefix to fail")
	}

	direct, err := MustCompile("ping").Search(Prefix{Nickname: "Bot", Optional: true})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if _, ok := direct.Match("please ping me"); !ok {
		t.Fatal("expected optional-prefix search to match anywhere")
	}
}
