package main

import (
	"flag"
	"fmt"
	"log"
	"net"
)

// 定义版本号
const Version = "1.0.0"

func main() {
	//启动日志
	SetupLogger()
	defer CloseLogger()

	showVersion := flag.Bool("version", false, "Show the version number")
	port := flag.String("port", "8889", "TCP port to listen on")
	flag.Parse()

	// 检查是否需要显示版本信息
	if *showVersion {
		fmt.Printf("Version: %s\n", Version)
		return
	}

	// 监听端口
	listener, err := net.Listen("tcp", ":"+*port)
	if err != nil {
		fmt.Printf("cannot listen at: %s\n", *port)
		return
	}
	defer listener.Close()
	fmt.Printf("started listening at: %s\n", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Printf("Connection failed: %v\n", err)
			continue
		}
		// Handle multiple client connections concurrently
		go handleConnection(conn)
	}
}
