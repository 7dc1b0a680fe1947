package tools

import "testing"

func TestAnalystToolsRegistered(t *testing.T) {
	for _, id := range []ToolID{ToolRunSQL, ToolRenderChart} {
		def, ok := GetToolDefinition(id)
		if !ok {
			t.Fatalf("GetToolDefinition(%q) missing", id)
		}
		if def.Dangerous {
			t.Fatalf("tool %q is marked dangerous", id)
		}
	}
	if got := len(ListSafeTools()); got < 2 {
		t.Fatalf("len(ListSafeTools()) = %d, want >= 2", got)
	}
}

func TestToolInfos(t *testing.T) {
	infos := ToolInfos(ToolRunSQL)
	if len(infos) != 1 {
		t.Fatalf("len(ToolInfos(run_sql)) = %d, want 1", len(infos))
	}
	if infos[0].Name != "run_sql" {
		t.Fatalf("ToolInfos(run_sql)[0].Name = %q, want run_sql", infos[0].Name)
	}
	if infos[0].ParamsOneOf == nil {
		t.Fatalf("run_sql has no parameter schema")
	}
	if got := len(ToolInfos()); got != len(ListSafeTools()) {
		t.Fatalf("len(ToolInfos()) = %d, want %d", got, len(ListSafeTools()))
	}
	if got := ToolInfos("missing"); len(got) != 0 {
		t.Fatalf("ToolInfos(missing) = %v, want empty", got)
	}
}
