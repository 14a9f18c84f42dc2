package probe

import (
	"net"
	"testing"
	"time"
)

func TestCheckConnectivity_Success(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	url := "http://" + listener.Addr().String()
	if err := CheckConnectivity(url, 500*time.Millisecond); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestCheckConnectivity_NothingListening(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	err = CheckConnectivity("http://"+addr, 200*time.Millisecond)
	if err == nil {
		t.Fatal("expected an error when nothing is listening")
	}
}

func TestCheckConnectivity_InvalidURL(t *testing.T) {
	err := CheckConnectivity("not a url", time.Second)
	if err == nil {
		t.Fatal("expected an error for a URL with no host")
	}
}

func TestCheckConnectivity_DefaultsPortByScheme(t *testing.T) {
	err := CheckConnectivity("https://127.0.0.1", 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected connection failure on port 443 with nothing listening")
	}
}
