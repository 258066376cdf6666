package precheck

import "testing"

func TestDetectSupervisor_ServiceUnitRecommendsRestart(t *testing.T) {
	info := DetectSupervisor([]string{"1:name=systemd:/system.slice/nginx.service"}, "")
	if !info.Managed || info.Unit != "nginx.service" || info.Remedy != RemedyServiceRestart {
		t.Fatalf("got %+v, want managed nginx.service with restart remedy", info)
	}
}

func TestDetectSupervisor_ScopeUnitRecommendsStop(t *testing.T) {
	info := DetectSupervisor([]string{"1:name=systemd:/user.slice/run-abc123.scope"}, "")
	if !info.Managed || info.Remedy != RemedyServiceStop {
		t.Fatalf("got %+v, want managed scope with stop remedy", info)
	}
}

func TestDetectSupervisor_SliceOnlyIsNotAUnit(t *testing.T) {
	info := DetectSupervisor([]string{"1:name=systemd:/user.slice"}, "")
	if info.Managed {
		t.Fatalf("expected slice-only cgroup line to not count as a managed unit")
	}
}

func TestDetectSupervisor_ParentCommFallback(t *testing.T) {
	info := DetectSupervisor(nil, "supervisord")
	if !info.Managed || info.Unit != "supervisord" {
		t.Fatalf("got %+v, want managed via parent comm fallback", info)
	}
}

func TestDetectSupervisor_Unmanaged(t *testing.T) {
	info := DetectSupervisor([]string{"1:name=systemd:/"}, "bash")
	if info.Managed {
		t.Fatalf("expected unmanaged process, got %+v", info)
	}
}
